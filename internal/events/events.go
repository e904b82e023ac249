package events

import (
	"context"
)

// Event topic constants
const (
	TopicStructCreated = "structs.struct.created"
	TopicStructCopied  = "structs.struct.copied"
	TopicStructDeleted = "structs.struct.deleted"

	// Template lifecycle events, emitted by the template manager.
	TopicTemplateAdded    = "structs.template.added"
	TopicTemplateRejected = "structs.template.rejected"
	TopicTemplateRemoved  = "structs.template.removed"

	// Hot-reload protocol events.
	TopicStructsOrphaned   = "structs.lifecycle.orphaned"
	TopicStructsReparented = "structs.lifecycle.reparented"
	TopicMigrationLossy    = "structs.migration.lossy"

	// Declaration loader events.
	TopicDeclLoaded = "structs.decl.loaded"
	TopicDeclFailed = "structs.decl.failed"
)

// TopicAll matches every topic above.
const TopicAll = "structs.>"

// Event types

type StructCreated struct {
	ID       string `json:"id"`
	Template string `json:"template"`
}

type StructCopied struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`
	Template string `json:"template"`
}

type StructDeleted struct {
	ID       string `json:"id"`
	Template string `json:"template"`
}

type TemplateAdded struct {
	Template    string   `json:"template"`
	Fields      []string `json:"fields"`
	Fingerprint string   `json:"fingerprint"`
	Generation  int      `json:"generation"`
}

type TemplateRejected struct {
	Template string `json:"template"`
	Reason   string `json:"reason"`
}

type TemplateRemoved struct {
	Template string `json:"template"`
}

type StructsOrphaned struct {
	Template string `json:"template"`
	Count    int    `json:"count"`
}

type StructsReparented struct {
	Template    string `json:"template"`
	Count       int    `json:"count"`
	Destructive bool   `json:"destructive"`
}

// MigrationLossy is published once per reparenting batch in which at least
// one struct lost data.
type MigrationLossy struct {
	Template string   `json:"template"`
	Count    int      `json:"count"`
	IDs      []string `json:"ids"`
}

type DeclLoaded struct {
	Source    string   `json:"source"`
	Templates []string `json:"templates"`
}

type DeclFailed struct {
	Source string   `json:"source"`
	Errors []string `json:"errors"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
