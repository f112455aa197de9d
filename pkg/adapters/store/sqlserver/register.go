package sqlserver

import "github.com/ekaya-inc/catalog-pipeline/pkg/adapters/store"

func init() {
	store.Register(store.Registration{
		Info: store.AdapterInfo{
			Type:        "sqlserver",
			DisplayName: "Microsoft SQL Server",
			Description: "SQL Server 2016+, Azure SQL Database",
		},
		Dialect: Dialect{},
	})
}
