// Package session implements the Ref/Session facade: a mutable-looking
// handle over the otherwise immutable content-addressed store, binding
// one valuestore.Store and one refstore.Store. Intercepting field writes
// the way a dynamic-language source might is deliberately not
// reintroduced here — mutation goes only through Set/Update.
package session
