package server

//go:generate swag init -g internal/server/server.go -o internal/server/docs --outputTypes go

// @title Scanzie API
// @version 1.0
// @description Dashboard API for SEO analyses: history, scores, and live progress of running scans.
// @contact.name Scanzie Maintainers
// @contact.url https://scanzie.app
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
