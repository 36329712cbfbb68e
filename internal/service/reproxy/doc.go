// Package reproxy renders reproxy.cfg from a named template. The template
// body is prefixed with an autogenerated-file banner and substituted with a
// fixed set of placeholders using shell-style $name / ${name} syntax, the
// same syntax the checked-in template files use.
package reproxy
