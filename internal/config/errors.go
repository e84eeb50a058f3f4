package config

const (
	ErrInitializeDatabaseFmt = "Failed to initialize database: %v"
	ErrOpenDraftFmt          = "Failed to open draft: %v"
	ErrRestoreGrantFmt       = "Failed to restore directory grant: %v"
	ErrWriteConfigContentFmt = "Failed to write config content: %v"

	ErrPublishBusy   = "A publish is already in progress"
	ErrEmptyDocument = "Document is empty"
)
