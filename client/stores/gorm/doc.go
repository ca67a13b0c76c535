//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based token store for authsession clients.
// It supports any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.)
// and suits hosts that keep many sessions side by side, one row per session key.
//
// # Database Schema
//
// AutoMigrate creates a single table:
//   - session_tokens: the access/refresh pair of each session key
//
// # Usage
//
//	db, _ := gorm.Open(sqlite.Open("sessions.db"), &gorm.Config{})
//	_ = gormstore.AutoMigrate(db)
//	store := gormstore.NewTokenStore(db, "user-42")
//	sess := client.NewSession(cfg, store)
package gorm
