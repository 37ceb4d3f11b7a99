// Package all registers every storage backend and the SQL Server driver.
// Binaries import it for side effects only.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "seasonetl/internal/storage/mssql"
	_ "seasonetl/internal/storage/postgres"
	_ "seasonetl/internal/storage/sqlite"
)
