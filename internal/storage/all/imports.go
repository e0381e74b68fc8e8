// Package all registers every built-in storage backend. Import it for side
// effects from the wiring layer:
//
//	import _ "bucketetl/internal/storage/all"
//
// after which storage.New accepts the kinds "postgres", "sqlite", "mysql" and
// "mssql". A binary that needs fewer backends imports them individually.
package all

import (
	_ "bucketetl/internal/storage/mssql"
	_ "bucketetl/internal/storage/mysql"
	_ "bucketetl/internal/storage/postgres"
	_ "bucketetl/internal/storage/sqlite"
)
