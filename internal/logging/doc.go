// Package logging builds the slog logger used by the botdesk binaries.
//
// Components take a *slog.Logger and tag it with
// logger.With("component", name). The console handler shows that tag as a
// prefix:
//
//	14:02:11 WRN [conversations] conversation save failed conversation_id=0192... error="disk full"
//
// Set logging.format to "json" for one JSON object per line instead.
package logging
