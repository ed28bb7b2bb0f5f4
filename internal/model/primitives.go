package model

// Primitives returns a registry preloaded with the built-in File and User
// entities. These mirror the base models every generated backend carries:
// File records uploaded content metadata, User is the authenticated principal
// model with group-based and ownership-based access rules.
func Primitives() (*Registry, error) {
	r := NewRegistry()
	if err := registerPrimitives(r); err != nil {
		return nil, err
	}
	if err := r.Freeze(); err != nil {
		return nil, err
	}
	return r, nil
}

func registerPrimitives(r *Registry) error {
	if err := r.Register(&Entity{
		Name: "File",
		Fields: []Field{
			{Name: "id", Type: ID},
			{Name: "createdAt", Type: DateTime, AutoCreatedAt: true},
			{Name: "updatedAt", Type: DateTime, AutoUpdatedAt: true},
			{Name: "name", Type: String},
			{Name: "mimetype", Type: String},
			{Name: "size", Type: Int, Nullable: true},
			{Name: "path", Type: String, Unique: true},
		},
		Rules: RuleSet{
			Create: []string{"Admin"},
			Read:   []string{"Admin", "User"},
			Update: []string{"Admin"},
			Delete: []string{"Admin"},
		},
	}); err != nil {
		return err
	}

	return r.Register(&Entity{
		Name: "User",
		Fields: []Field{
			{Name: "id", Type: ID},
			{Name: "createdAt", Type: DateTime, AutoCreatedAt: true},
			{Name: "updatedAt", Type: DateTime, AutoUpdatedAt: true},
			{Name: "email", Type: Email, Unique: true},
			{Name: "password", Type: Password},
			{Name: "group", Type: String},
			{Name: "name", Type: String},
			{Name: "avatarId", Type: String, Nullable: true},
		},
		Associations: []Association{
			{Name: "avatar", Target: "File", LocalKey: "avatarId", Upload: &UploadRule{
				Accept: []string{"image/jpeg"},
				MinMB:  0.1,
				MaxMB:  5,
			}},
		},
		Rules: RuleSet{
			Create: []string{"Admin"},
			Read:   []string{"Admin", "$user.id == {{id}}"},
			Update: []string{"Admin", "$user.id == {{id}}"},
			Delete: []string{"Admin"},
		},
	})
}
