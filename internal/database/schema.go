package database

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    username VARCHAR(255) NOT NULL UNIQUE,
    password_hash VARCHAR(255) NOT NULL,
    created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3)
)`,
	`CREATE TABLE IF NOT EXISTS generation_requests (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    mode VARCHAR(32) NOT NULL,
    input_text TEXT,
    input_image_ref VARCHAR(512),
    output_image_ref VARCHAR(512),
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    error_detail TEXT,
    created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    INDEX idx_user_id (user_id),
    INDEX idx_created_at (created_at),
    INDEX idx_user_created (user_id, created_at),
    FOREIGN KEY (user_id) REFERENCES users(id)
)`,
	`CREATE TABLE IF NOT EXISTS backend_rate_limits (
    id BIGINT PRIMARY KEY,
    minute_count INT NOT NULL DEFAULT 0,
    minute_window_start DATETIME(3) NOT NULL,
    day_count INT NOT NULL DEFAULT 0,
    day_window_start DATETIME(3) NOT NULL
)`,
}
