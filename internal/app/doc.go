// Package app provides the composition layer of the CRUD service.
//
// # Architecture Role
//
// The app package wires storage, resource services and lifecycle management
// into a running application. It holds no business rules of its own: those
// live in internal/app/services/ and the domain packages.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Resource models, payloads and validation rules
//	│   ├── widget/
//	│   ├── user/
//	│   ├── category/
//	│   └── product/
//	├── storage/            # Store interfaces and implementations
//	│   ├── interfaces.go   # WidgetStore, UserStore, CategoryStore, ProductStore
//	│   ├── memory/         # In-memory implementation for tests and --memory
//	│   ├── postgres/       # PostgreSQL implementation
//	│   └── cache/          # Redis read-through cache
//	├── services/           # Retry, validation and error translation per resource
//	├── httpapi/            # Router, JSON codec and handlers
//	├── metrics/            # Prometheus collectors
//	├── runtime/            # HTTP server lifecycle and housekeeping
//	└── system/             # Lifecycle manager
//
// # Dependency Direction
//
//	cmd/crud-service/
//	      │
//	      ▼
//	internal/app/runtime ──► internal/app/httpapi ──► internal/app (composition)
//	                                                        │
//	                                                        ├──► services ──► storage interfaces
//	                                                        │
//	                                                        └──► storage/{memory,postgres,cache}
//	                                                                  │
//	                                                                  └──► internal/database
//
// Lower layers never decide HTTP status. Stores return classified
// database errors, services translate them into *errors.ServiceError values,
// and httpapi writes those as JSON.
//
// # Example: Adding a New Resource
//
//  1. Create the model in internal/app/domain/<resource>/
//  2. Add a store interface to internal/app/storage/interfaces.go
//  3. Implement it in storage/postgres/ and storage/memory/, plus a migration
//  4. Create the service in internal/app/services/<resource>/
//  5. Wire it in internal/app/application.go
//  6. Add routes in internal/app/httpapi/handler.go
package app
