package sql

import (
	"embed"
)

//go:embed schema/*.sql
//go:embed seeds/demo/*.sql
var Content embed.FS
