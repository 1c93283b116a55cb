// Package version хранит имя и версию сборки. Version переопределяется при сборке:
//
//	go build -ldflags "-X telegram-reader/internal/support/version.Version=1.2.0" ./cmd/reader
package version

// Name — имя приложения в выводе version и паспорте устройства.
const Name = "telegram-reader"

// Version — версия сборки.
var Version = "0.1.0-dev"
