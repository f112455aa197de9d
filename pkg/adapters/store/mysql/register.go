package mysql

import "github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store"

func init() {
	store.Register(store.Registration{
		Info: store.AdapterInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
			Description: "MySQL 8+, MariaDB 10.5+",
		},
		Dialect: Dialect{},
	})
}
