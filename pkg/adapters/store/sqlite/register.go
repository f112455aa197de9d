package sqlite

import "github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store"

func init() {
	store.Register(store.Registration{
		Info: store.AdapterInfo{
			Type:        "sqlite",
			DisplayName: "SQLite",
			Description: "Local database file, no server required",
		},
		Dialect: Dialect{},
	})
}
