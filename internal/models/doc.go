// Package models defines domain entities for the feed amalgamator.
//
// The package contains two categories of types:
//
// 1. Persistent Entities: database-backed records with ids, sequence numbers and timestamps
//   - [User] : a local account that logs in to the web application
//   - [Application] : the client registered with one remote server (one row per domain)
//   - [LinkedAccount] : a user's access token on one remote server
//
// 2. Data Transfer Objects (DTOs): values built from remote API responses
//   - [Post] : a normalized timeline entry tagged with the server it came from
//   - [Account], [Media] : nested parts of a [Post]
//
// All persistent entities implement the [Model] interface.
package models
