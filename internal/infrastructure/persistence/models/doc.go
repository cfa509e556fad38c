// Package models contains the GORM persistence models of the sync engine.
// They are kept apart from the domain types so the domain stays free of ORM
// tags; each model carries ToDomain and a FromDomain constructor, and
// repositories only ever read and write models.
package models
