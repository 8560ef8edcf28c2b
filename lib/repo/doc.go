// Package repo provides the repository handle the peer server and the state
// store operate on.
//
// A repository is a working copy directory with a private storage directory
// .wp inside it:
//
//	.wp/config.yaml     repository configuration (viper)
//	.wp/dirstate        working copy parents, one id per line
//	.wp/heads           repository heads, one id per line
//	.wp/keys/<ns>/      key namespaces (bookmarks, tags, ...) as fstore
//	.wp/locks/          lock records of lockmgr
//	.wp/bundles/        bundles received through unbundle
//	.wp/<slot>          state files of interrupted operations
//
// The package models only what the wire commands and the state store need.
// Revision storage and history are not part of it.
package repo
