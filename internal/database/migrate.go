package database

import (
	"context"
	"fmt"
)

// Layout selects which generation of the schema Migrate creates. The
// engine runs against both; Legacy exists so deployments that have not
// migrated yet (and the compatibility tests) can be reproduced.
type Layout int

const (
	LayoutCurrent Layout = iota
	LayoutLegacy
)

// Migrate creates the certificate tables when they do not exist yet.
func Migrate(ctx context.Context, db DBTX, dialect Dialect, layout Layout) error {
	var stmts []string
	switch {
	case dialect == MySQL && layout == LayoutCurrent:
		stmts = mysqlCurrent
	case dialect == MySQL && layout == LayoutLegacy:
		stmts = mysqlLegacy
	case dialect == SQLite && layout == LayoutCurrent:
		stmts = sqliteCurrent
	case dialect == SQLite && layout == LayoutLegacy:
		stmts = sqliteLegacy
	default:
		return fmt.Errorf("migrate: unsupported dialect %q", dialect)
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var mysqlCurrent = []string{
	`CREATE TABLE IF NOT EXISTS disenos_certificados (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		nombre VARCHAR(150) NOT NULL,
		activo TINYINT(1) NOT NULL DEFAULT 0,
		campos_json LONGTEXT NOT NULL,
		fondo_url VARCHAR(500) NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS certificados (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		codigo_verificacion VARCHAR(16) NOT NULL,
		dni CHAR(8) NOT NULL,
		nombre_completo VARCHAR(255) NOT NULL,
		correo_electronico VARCHAR(255) NULL,
		tipo_certificado VARCHAR(50) NOT NULL,
		rol VARCHAR(80) NULL,
		nombre_evento VARCHAR(255) NOT NULL,
		descripcion_evento TEXT NULL,
		fecha_inicio DATE NULL,
		fecha_fin DATE NULL,
		horas_academicas INT NULL,
		fecha_emision DATETIME NOT NULL,
		activo TINYINT(1) NOT NULL DEFAULT 1,
		plantilla_certificado VARCHAR(255) NULL,
		diseno_id BIGINT NULL,
		config_usada LONGTEXT NULL,
		fondo_usado VARCHAR(500) NULL,
		pdf_content LONGBLOB NULL,
		pdf_generado_en DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uq_certificados_codigo (codigo_verificacion),
		KEY idx_certificados_dni_evento (dni, nombre_evento)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS cargas_masivas (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		filename VARCHAR(255) NOT NULL,
		original_name VARCHAR(255) NOT NULL,
		diseno_id BIGINT NULL,
		processed TINYINT(1) NOT NULL DEFAULT 0,
		num_certificates INT NOT NULL DEFAULT 0,
		error_log TEXT NULL,
		created_at DATETIME NOT NULL,
		processed_at DATETIME NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var mysqlLegacy = []string{
	`CREATE TABLE IF NOT EXISTS disenos_certificados (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		nombre VARCHAR(150) NOT NULL,
		activa TINYINT(1) NOT NULL DEFAULT 0,
		configuracion LONGTEXT NOT NULL,
		fondo_certificado VARCHAR(500) NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS certificados (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		codigo_verificacion VARCHAR(16) NOT NULL,
		dni CHAR(8) NOT NULL,
		nombre_completo VARCHAR(255) NOT NULL,
		correo_electronico VARCHAR(255) NULL,
		tipo_certificado VARCHAR(50) NOT NULL,
		rol VARCHAR(80) NULL,
		nombre_evento VARCHAR(255) NOT NULL,
		descripcion_evento TEXT NULL,
		fecha_inicio DATE NULL,
		fecha_fin DATE NULL,
		horas_academicas INT NULL,
		fecha_emision DATETIME NOT NULL,
		activo TINYINT(1) NOT NULL DEFAULT 1,
		plantilla_certificado VARCHAR(255) NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uq_certificados_codigo (codigo_verificacion)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	mysqlCurrent[2],
}

var sqliteCurrent = []string{
	`CREATE TABLE IF NOT EXISTS disenos_certificados (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nombre TEXT NOT NULL,
		activo INTEGER NOT NULL DEFAULT 0,
		campos_json TEXT NOT NULL,
		fondo_url TEXT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS certificados (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		codigo_verificacion TEXT NOT NULL,
		dni TEXT NOT NULL,
		nombre_completo TEXT NOT NULL,
		correo_electronico TEXT NULL,
		tipo_certificado TEXT NOT NULL,
		rol TEXT NULL,
		nombre_evento TEXT NOT NULL,
		descripcion_evento TEXT NULL,
		fecha_inicio DATE NULL,
		fecha_fin DATE NULL,
		horas_academicas INTEGER NULL,
		fecha_emision DATETIME NOT NULL,
		activo INTEGER NOT NULL DEFAULT 1,
		plantilla_certificado TEXT NULL,
		diseno_id INTEGER NULL,
		config_usada TEXT NULL,
		fondo_usado TEXT NULL,
		pdf_content BLOB NULL,
		pdf_generado_en DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_certificados_codigo ON certificados (codigo_verificacion)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_certificados_dni_evento_activo ON certificados (dni, nombre_evento) WHERE activo = 1`,
	`CREATE TABLE IF NOT EXISTS cargas_masivas (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		original_name TEXT NOT NULL,
		diseno_id INTEGER NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		num_certificates INTEGER NOT NULL DEFAULT 0,
		error_log TEXT NULL,
		created_at DATETIME NOT NULL,
		processed_at DATETIME NULL
	)`,
}

var sqliteLegacy = []string{
	`CREATE TABLE IF NOT EXISTS disenos_certificados (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nombre TEXT NOT NULL,
		activa INTEGER NOT NULL DEFAULT 0,
		configuracion TEXT NOT NULL,
		fondo_certificado TEXT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS certificados (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		codigo_verificacion TEXT NOT NULL,
		dni TEXT NOT NULL,
		nombre_completo TEXT NOT NULL,
		correo_electronico TEXT NULL,
		tipo_certificado TEXT NOT NULL,
		rol TEXT NULL,
		nombre_evento TEXT NOT NULL,
		descripcion_evento TEXT NULL,
		fecha_inicio DATE NULL,
		fecha_fin DATE NULL,
		horas_academicas INTEGER NULL,
		fecha_emision DATETIME NOT NULL,
		activo INTEGER NOT NULL DEFAULT 1,
		plantilla_certificado TEXT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_certificados_codigo ON certificados (codigo_verificacion)`,
	sqliteCurrent[4],
}
