// Command bucketetl drains CSV objects from a bucket into a database table.
//
// Every object is loaded, validated against the configured schema, rounded,
// renamed, filtered and appended to the table; only fully written objects are
// deleted from the bucket.
package main

import (
	"os"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "bucketetl/internal/storage/all"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}
