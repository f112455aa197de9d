package postgres

import "github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store"

func init() {
	store.Register(store.Registration{
		Info: store.AdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "PostgreSQL 12+, Aurora PostgreSQL, Supabase",
		},
		Dialect: Dialect{},
	})
}
