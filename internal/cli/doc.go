// Package cli — команды инструмента relay: управление заданиями и
// runs через HTTP API worker.
package cli
