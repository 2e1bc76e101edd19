package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		first_name    VARCHAR(100) NOT NULL DEFAULT '',
		last_name     VARCHAR(100) NOT NULL DEFAULT '',
		role          ENUM('USER','ADMIN') NOT NULL DEFAULT 'USER',
		street        VARCHAR(255) NOT NULL DEFAULT '',
		city          VARCHAR(100) NOT NULL DEFAULT '',
		state         CHAR(2) NOT NULL DEFAULT '',
		zip           VARCHAR(10) NOT NULL DEFAULT '',
		is_active     TINYINT(1) NOT NULL DEFAULT 1,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_refresh_hash (token_hash),
		KEY idx_refresh_user (user_id),
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id               BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		primary_user_id  BIGINT UNSIGNED NOT NULL,
		reservation_date DATE NOT NULL,
		status           ENUM('ACTIVE','CANCELLED') NOT NULL DEFAULT 'ACTIVE',
		can_transfer     TINYINT(1) NOT NULL DEFAULT 1,
		created_at       DATETIME NOT NULL,
		KEY idx_reservations_date (reservation_date),
		CONSTRAINT fk_reservations_primary FOREIGN KEY (primary_user_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reservation_users (
		reservation_id BIGINT UNSIGNED NOT NULL,
		user_id        BIGINT UNSIGNED NOT NULL,
		is_primary     TINYINT(1) NOT NULL DEFAULT 0,
		can_modify     TINYINT(1) NOT NULL DEFAULT 0,
		can_transfer   TINYINT(1) NOT NULL DEFAULT 0,
		status         ENUM('ACTIVE','CANCELLED') NOT NULL DEFAULT 'ACTIVE',
		added_at       DATETIME NOT NULL,
		cancelled_at   DATETIME NULL,
		PRIMARY KEY (reservation_id, user_id),
		KEY idx_reservation_users_user (user_id, status),
		CONSTRAINT fk_ru_reservation FOREIGN KEY (reservation_id) REFERENCES reservations (id),
		CONSTRAINT fk_ru_user FOREIGN KEY (user_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS date_capacity (
		capacity_date  DATE NOT NULL PRIMARY KEY,
		total_bookings INT NOT NULL DEFAULT 0,
		max_capacity   INT NOT NULL,
		CONSTRAINT chk_capacity_bounds CHECK (total_bookings >= 0 AND total_bookings <= max_capacity)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reservation_transfers (
		id                  BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		reservation_id      BIGINT UNSIGNED NOT NULL,
		from_user_id        BIGINT UNSIGNED NOT NULL,
		to_user_id          BIGINT UNSIGNED NOT NULL,
		spots_to_transfer   JSON NOT NULL,
		is_primary_transfer TINYINT(1) NOT NULL DEFAULT 0,
		status              ENUM('PENDING','ACCEPTED','DECLINED','EXPIRED') NOT NULL DEFAULT 'PENDING',
		requested_at        DATETIME NOT NULL,
		expires_at          DATETIME NOT NULL,
		responded_at        DATETIME NULL,
		KEY idx_transfers_reservation (reservation_id, status),
		KEY idx_transfers_to (to_user_id),
		KEY idx_transfers_from (from_user_id),
		CONSTRAINT fk_transfers_reservation FOREIGN KEY (reservation_id) REFERENCES reservations (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
