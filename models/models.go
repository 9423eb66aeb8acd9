package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// Database schema overview:
// 1. users - email/password and Google OAuth accounts (upsert keyed on google_id)
// 2. chat_sessions - one owner per session, newest-first listing
// 3. chat_messages - immutable, ordered by created_at within a session
// 4. documents - uploaded files tracked through the analysis lifecycle
// 5. document_chunks - embedded text slices used for retrieval at chat time
