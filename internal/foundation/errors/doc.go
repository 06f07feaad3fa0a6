// Package errors provides the classified error primitives used across sitegen.
//
// A ClassifiedError carries a category (content, template, execution, ...),
// a severity and a free-form context. Build-facing failures additionally carry
// a stable code (MalformedFrontMatter, CyclicTemplateGraph, ...) under the
// "code" context key so reports and tests can match on it.
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryTemplate, "template not found").
//		WithCode(errors.CodeTemplateNotFound).
//		WithContext("template", name).
//		Build()
package errors
