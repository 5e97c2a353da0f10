// Package mcp exposes drawing sessions as MCP tools over stdio.
//
// Tools accept an optional session_id. Without one, calls share a default
// session created on first use, which suits a single assistant driving one
// arm.
package mcp
