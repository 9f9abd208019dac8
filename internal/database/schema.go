package database

var schema = []string{`
CREATE TABLE IF NOT EXISTS users (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    email VARCHAR(255) NOT NULL UNIQUE,
    password_hash VARCHAR(255) NOT NULL,
    credits INT NOT NULL DEFAULT 500,
    plan VARCHAR(64) NOT NULL DEFAULT 'Free',
    is_verified TINYINT(1) NOT NULL DEFAULT 0,
    verification_token VARCHAR(64) NULL UNIQUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    KEY idx_users_plan (plan),
    CONSTRAINT chk_users_credits CHECK (credits >= 0)
)`, `
CREATE TABLE IF NOT EXISTS prompts (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    original_text TEXT NOT NULL,
    generated_prompt TEXT NOT NULL,
    prompt_type ENUM('image', 'text', 'video', 'website', 'code') NOT NULL,
    created_at TIMESTAMP(3) DEFAULT CURRENT_TIMESTAMP(3),
    KEY idx_prompts_user_created (user_id, created_at),
    FOREIGN KEY (user_id) REFERENCES users(id)
)`, `
CREATE TABLE IF NOT EXISTS orders (
    id VARCHAR(128) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    plan VARCHAR(64) NOT NULL,
    credits INT NOT NULL,
    amount INT NOT NULL,
    currency CHAR(3) NOT NULL,
    receipt VARCHAR(64) NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_orders_user (user_id),
    FOREIGN KEY (user_id) REFERENCES users(id)
)`, `
CREATE TABLE IF NOT EXISTS payments (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    order_id VARCHAR(128) NOT NULL,
    payment_id VARCHAR(128) NOT NULL,
    plan VARCHAR(64) NOT NULL,
    credits INT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE KEY uniq_order_payment (order_id, payment_id),
    UNIQUE KEY uniq_payment_order (order_id),
    FOREIGN KEY (user_id) REFERENCES users(id)
)`, `
CREATE TABLE IF NOT EXISTS sessions (
    token CHAR(64) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_sessions_user (user_id),
    FOREIGN KEY (user_id) REFERENCES users(id)
)`,
}
