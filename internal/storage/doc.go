// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations to disk as JSON files, one per
// conversation, under a single base directory.
//
// Writes are atomic (temp file, fsync, rename) so a crash mid-save never
// leaves a corrupt file. The store caps the number of retained conversations
// and evicts the oldest by update time when over the cap.
//
// The engine treats the store as a write-through collaborator: it saves
// after every conversation mutation and never reads back during a session.
package storage
