package database

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id CHAR(36) PRIMARY KEY,
		full_name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		bio TEXT NOT NULL,
		profile_pic TEXT NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq BIGINT AUTO_INCREMENT PRIMARY KEY,
		id CHAR(36) NOT NULL UNIQUE,
		sender_id CHAR(36) NOT NULL,
		receiver_id CHAR(36) NOT NULL,
		text TEXT NOT NULL,
		image TEXT NOT NULL,
		seen BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_messages_pair (sender_id, receiver_id, seen),
		INDEX idx_messages_receiver (receiver_id, seen)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id CHAR(36) PRIMARY KEY,
		member_a CHAR(36) NOT NULL,
		member_b CHAR(36) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_conversations_pair (member_a, member_b),
		INDEX idx_conversations_b (member_b)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		bio TEXT NOT NULL,
		profile_pic TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		text TEXT NOT NULL,
		image TEXT NOT NULL,
		seen BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, seen)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id, seen)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		member_a TEXT NOT NULL,
		member_b TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (member_a, member_b)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_b ON conversations(member_b)`,
}
