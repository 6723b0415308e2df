package migrations

// Migration moves the identity store schema from one version to another.
// Statements run in order inside a single transaction.
type Migration struct {
	From        int
	To          int
	Description string
	// Deprecated migrations are never planned automatically.
	Deprecated bool
	Statements []string
}

func (m Migration) String() string {
	return fmtStep(m.From, m.To)
}

// From4To5 adds the legacy fingerprint flags to identity.
var From4To5 = Migration{
	From:        4,
	To:          5,
	Description: "add fingerprint flags",
	Statements: []string{
		`ALTER TABLE identity ADD COLUMN showFingerPrintUpgrade INTEGER NOT NULL DEFAULT 1`,
		`ALTER TABLE identity ADD COLUMN useFingerPrint INTEGER NOT NULL DEFAULT 0`,
	},
}

// From5To7 changes identityprovider.logo from BLOB to TEXT. Stored logos are dropped.
var From5To7 = Migration{
	From:        5,
	To:          7,
	Description: "identityprovider.logo becomes text",
	Statements: []string{
		`CREATE TABLE new_identityprovider (_id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL, displayName TEXT NOT NULL, identifier TEXT NOT NULL, authenticationUrl TEXT NOT NULL, ocraSuite TEXT NOT NULL, infoUrl TEXT, logo TEXT)`,
		`INSERT INTO new_identityprovider (_id, displayName, identifier, authenticationUrl, ocraSuite, infoUrl) SELECT _id, displayName, identifier, authenticationUrl, ocraSuite, infoUrl FROM identityprovider`,
		`DROP TABLE identityprovider`,
		`ALTER TABLE new_identityprovider RENAME TO identityprovider`,
	},
}

// From7To8 adds the identity foreign key and the legacy indexes.
var From7To8 = Migration{
	From:        7,
	To:          8,
	Description: "add foreign key and indexes",
	Statements: []string{
		`CREATE TABLE new_identity (_id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL, displayName TEXT NOT NULL, identifier TEXT NOT NULL, identityProvider INTEGER NOT NULL, blocked INTEGER NOT NULL DEFAULT 0, sortIndex INTEGER NOT NULL, showFingerPrintUpgrade INTEGER NOT NULL DEFAULT 1, useFingerPrint INTEGER NOT NULL DEFAULT 0, FOREIGN KEY(identityProvider) REFERENCES identityprovider(_id) ON UPDATE NO ACTION ON DELETE CASCADE)`,
		`INSERT INTO new_identity (_id, displayName, identifier, identityProvider, blocked, sortIndex, showFingerPrintUpgrade, useFingerPrint) SELECT _id, displayName, identifier, identityProvider, blocked, sortIndex, showFingerPrintUpgrade, useFingerPrint FROM identity`,
		`DROP TABLE identity`,
		`ALTER TABLE new_identity RENAME TO identity`,
		`CREATE UNIQUE INDEX id_idx ON identity(_id)`,
		`CREATE INDEX identifier_idx ON identity(identifier)`,
		`CREATE INDEX identity_provider_idx ON identity(identityProvider)`,
		`CREATE TABLE new_identityprovider (_id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL, displayName TEXT NOT NULL, identifier TEXT NOT NULL, authenticationUrl TEXT NOT NULL, ocraSuite TEXT NOT NULL, infoUrl TEXT, logo TEXT)`,
		`INSERT INTO new_identityprovider (_id, displayName, identifier, authenticationUrl, ocraSuite, infoUrl, logo) SELECT _id, displayName, identifier, authenticationUrl, ocraSuite, infoUrl, logo FROM identityprovider`,
		`DROP TABLE identityprovider`,
		`ALTER TABLE new_identityprovider RENAME TO identityprovider`,
		`CREATE INDEX ip_identifier_idx ON identityprovider(identifier)`,
	},
}

const identityV9Table = `CREATE TABLE new_identity (_id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL, displayName TEXT NOT NULL, identifier TEXT NOT NULL, identityProvider INTEGER NOT NULL, blocked INTEGER NOT NULL DEFAULT 0, sortIndex INTEGER NOT NULL, biometricInUse INTEGER NOT NULL DEFAULT 0, biometricOfferUpgrade INTEGER NOT NULL DEFAULT 1, FOREIGN KEY(identityProvider) REFERENCES identityprovider(_id) ON UPDATE NO ACTION ON DELETE RESTRICT)`

const identityV9Copy = `INSERT INTO new_identity (_id, displayName, identifier, identityProvider, blocked, sortIndex, biometricInUse, biometricOfferUpgrade) SELECT _id, displayName, identifier, identityProvider, blocked, sortIndex, useFingerPrint, showFingerPrintUpgrade FROM identity`

// From8To9 renames the fingerprint flags to biometric and rebuilds both tables.
//
// Deprecated: it creates a UNIQUE index on identityprovider.identifier. Provider
// identifiers may be shared, so the index rejects legitimate rows. Use From8To10.
// Kept to reproduce stores that already went through it.
var From8To9 = Migration{
	From:        8,
	To:          9,
	Description: "rename fingerprint to biometric, unique provider identifier",
	Deprecated:  true,
	Statements: []string{
		identityV9Table,
		identityV9Copy,
		`DROP TABLE identity`,
		`ALTER TABLE new_identity RENAME TO identity`,
		`CREATE UNIQUE INDEX index_identity_id ON identity(_id)`,
		`CREATE INDEX index_identity_identifier ON identity(identifier)`,
		`CREATE INDEX index_identity_identityProvider ON identity(identityProvider)`,
		`CREATE TABLE new_identityprovider (_id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL, displayName TEXT NOT NULL, identifier TEXT NOT NULL, authenticationUrl TEXT NOT NULL, ocraSuite TEXT NOT NULL, infoUrl TEXT, logo TEXT)`,
		`INSERT INTO new_identityprovider (_id, displayName, identifier, authenticationUrl, ocraSuite, infoUrl, logo) SELECT _id, displayName, identifier, authenticationUrl, ocraSuite, infoUrl, logo FROM identityprovider`,
		`DROP TABLE identityprovider`,
		`ALTER TABLE new_identityprovider RENAME TO identityprovider`,
		`CREATE UNIQUE INDEX index_identityprovider_identifier ON identityprovider(identifier)`,
	},
}

// From8To10 renames the fingerprint flags to biometric and renames the provider
// identifier index, keeping it non-unique.
var From8To10 = Migration{
	From:        8,
	To:          10,
	Description: "rename fingerprint to biometric, rename provider index",
	Statements: []string{
		identityV9Table,
		identityV9Copy,
		`DROP TABLE identity`,
		`ALTER TABLE new_identity RENAME TO identity`,
		`CREATE UNIQUE INDEX index_identity_id ON identity(_id)`,
		`CREATE INDEX index_identity_identifier ON identity(identifier)`,
		`CREATE INDEX index_identity_identityProvider ON identity(identityProvider)`,
		`DROP INDEX ip_identifier_idx`,
		`CREATE INDEX index_identityprovider_identifier ON identityprovider(identifier)`,
	},
}

// From9To10 replaces the unique provider identifier index left by From8To9.
// Rows already rejected by that index are not recovered.
var From9To10 = Migration{
	From:        9,
	To:          10,
	Description: "make provider identifier index non-unique",
	Statements: []string{
		`DROP INDEX index_identityprovider_identifier`,
		`CREATE INDEX index_identityprovider_identifier ON identityprovider(identifier)`,
	},
}

// Valid returns the migrations used for automatic upgrades.
func Valid() []Migration {
	return []Migration{From4To5, From5To7, From7To8, From8To10, From9To10}
}

// All returns every known migration, including deprecated ones.
func All() []Migration {
	return []Migration{From4To5, From5To7, From7To8, From8To9, From8To10, From9To10}
}
