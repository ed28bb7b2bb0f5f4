package naming

import "strings"

// Namer turns entity names into the generated operation surface. Entity names
// are singular PascalCase; generated names are camelCase.
type Namer struct {
	config Config
}

// New creates a Namer with the given configuration
func New(cfg Config) *Namer {
	return &Namer{config: cfg}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig())
}

// Surface is the full set of operation names generated for one entity.
type Surface struct {
	Entity     string
	FindOne    string
	FindMany   string
	Connection string
	CreateOne  string
	CreateMany string
	UpdateOne  string
	UpdateMany string
	DeleteOne  string
	DeleteMany string
}

// SurfaceFor derives every operation name for an entity.
// Example: "User" -> user / users / usersConnection / createUser /
// createManyUsers / updateUser / updateManyUsers / deleteUser /
// deleteManyUsers.
func (n *Namer) SurfaceFor(entity string) Surface {
	singular := lowerCamel(entity)
	plural := n.Pluralize(singular)
	pascalSingular := entity
	pascalPlural := upperFirst(plural)

	return Surface{
		Entity:     entity,
		FindOne:    singular,
		FindMany:   plural,
		Connection: plural + "Connection",
		CreateOne:  "create" + pascalSingular,
		CreateMany: "createMany" + pascalPlural,
		UpdateOne:  "update" + pascalSingular,
		UpdateMany: "updateMany" + pascalPlural,
		DeleteOne:  "delete" + pascalSingular,
		DeleteMany: "deleteMany" + pascalPlural,
	}
}

// OrderByValue builds the enum form for one sortable field and direction.
// Example: ("createdAt", true) -> "createdAt_DESC".
func (n *Namer) OrderByValue(field string, desc bool) string {
	if desc {
		return field + "_DESC"
	}
	return field + "_ASC"
}

func lowerCamel(name string) string {
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func upperFirst(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
