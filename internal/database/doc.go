// Copyright 2024 aicarousel Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package database wraps the gorm handle backing the gateway's single
SQLite file with connection-pool tuning and a background liveness
check.

PoolManager holds the *gorm.DB instance used by CredentialStore and
ProviderSettingsStore, and the underlying *sql.DB it configures
(MaxIdleConns, MaxOpenConns, ConnMaxLifetime, ConnMaxIdleTime). When
PoolConfig.HealthCheckInterval is non-zero, a background goroutine
pings the database on that interval and logs any failure.
*/
package database
