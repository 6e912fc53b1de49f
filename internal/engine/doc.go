// Package engine содержит контекст выполнения run (RunContext),
// rule evaluator для guard/extract выражений и два взаимозаменяемых
// движка рендеринга шаблонов (gotmpl, mustache).
//
// Разделение ответственности фиксировано: evaluator — единственный
// канонический язык для guard и извлечения результатов; движки
// шаблонов используются строго для текстовой интерполяции
// (URL, заголовки, тела запросов).
package engine
