//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore token store for authsession
// clients. Each session key maps to one SessionTokens entity holding the
// whole pair, so a Save is a single Put.
//
// # Namespacing
//
// Pass a namespace to isolate the sessions of different tenants:
//
//	store := gae.NewTokenStore(dsClient, "tenant-123", "user-42")
//
// # Usage
//
//	dsClient, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewTokenStore(dsClient, "", "user-42") // default namespace
//	sess := client.NewSession(cfg, store)
package gae
