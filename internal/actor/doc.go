// Package actor выполняет runs: один актор на run, шаги по порядку
// с guard, рендером запроса, исходящим вызовом с retry и extract
// результата в контекст. Исход каждого шага сохраняется до перехода
// к следующему.
package actor
