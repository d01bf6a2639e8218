/*
Package bigram provides a small word-level bigram language model for suggesting
completions of short command-like strings, such as DSL invocations of the form
`open app="journal"`.

A Model learns how often each token follows another from a line-oriented corpus,
derives a cumulative successor distribution for every token that has been
followed by something, and extends a prefix one token at a time by sampling from
those distributions. Sampling with a fixed seed is fully reproducible.

Trained counts can be exported as JSON or msgpack, or kept in a SQLite database
through a Store. The successor order recorded during training is preserved by
every persistence path, so a reloaded model samples exactly like the original.
*/
package bigram
