package memory

import "github.com/hashicorp/go-memdb"

var (
	tblAccounts      = "accounts"
	tblPasswords     = "passwords"
	tblProviderLinks = "provider_links"
	tblSessions      = "sessions"
	tblProfiles      = "profiles"
	tblWorkspaces    = "workspaces"
	tblMemberships   = "memberships"
)

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblAccounts: {
			Name: tblAccounts,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"email": {
					Name:    "email",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Email", Lowercase: true},
				},
			},
		},
		tblPasswords: {
			Name: tblPasswords,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "AccountID"},
				},
			},
		},
		tblProviderLinks: {
			Name: tblProviderLinks,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"provider_subject": {
					Name:   "provider_subject",
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "Provider"},
							&memdb.StringFieldIndex{Field: "ProviderSubject"},
						},
					},
				},
			},
		},
		tblSessions: {
			Name: tblSessions,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"token_hash": {
					Name:    "token_hash",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "TokenHash"},
				},
				"account_id": {
					Name:    "account_id",
					Indexer: &memdb.StringFieldIndex{Field: "AccountID"},
				},
			},
		},
		tblProfiles: {
			Name: tblProfiles,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
			},
		},
		tblWorkspaces: {
			Name: tblWorkspaces,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"join_code": {
					Name:    "join_code",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "JoinCode", Lowercase: true},
				},
			},
		},
		tblMemberships: {
			Name: tblMemberships,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"workspace_identity": {
					Name:   "workspace_identity",
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "WorkspaceID"},
							&memdb.StringFieldIndex{Field: "IdentityID"},
						},
					},
				},
				"workspace_id": {
					Name:    "workspace_id",
					Indexer: &memdb.StringFieldIndex{Field: "WorkspaceID"},
				},
				"identity_id": {
					Name:    "identity_id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "IdentityID"},
				},
			},
		},
	},
}
