// Package loader registers authdb drivers via blank imports.
// Import this package to ensure the default drivers are available.
//
// Usage in main.go:
//
//	import _ "github.com/MahdiBaghbani/brokerauth-go/internal/authdb/loader"
package loader

import (
	// Register the GORM driver (MySQL, SQLite)
	_ "github.com/MahdiBaghbani/brokerauth-go/internal/authdb/gorm"

	// Register the static JSON fixture driver
	_ "github.com/MahdiBaghbani/brokerauth-go/internal/authdb/static"
)
