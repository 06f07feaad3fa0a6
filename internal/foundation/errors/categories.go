package errors

import "maps"

// ErrorCategory represents the broad category of an error for classification and routing.
type ErrorCategory string

const (
	// CategoryConfig represents user-facing configuration and input errors.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"

	// CategoryContent represents errors produced while reading and parsing the site.
	CategoryContent   ErrorCategory = "content"
	CategoryTemplate  ErrorCategory = "template"
	CategoryShortcode ErrorCategory = "shortcode"
	CategoryExecution ErrorCategory = "execution"
	CategoryLink      ErrorCategory = "link"

	// CategoryBuild represents build orchestration and output errors.
	CategoryBuild      ErrorCategory = "build"
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryCache      ErrorCategory = "cache"
	CategoryEventStore ErrorCategory = "eventstore"

	// CategoryRuntime represents runtime and infrastructure errors.
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates the impact level of an error.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Aborts the build
	SeverityError   ErrorSeverity = "error"   // Fails the current page or operation
	SeverityWarning ErrorSeverity = "warning" // Reported, output still produced
	SeverityInfo    ErrorSeverity = "info"
)

// ErrorCode identifies a specific, user-visible build failure.
type ErrorCode string

const (
	CodeMalformedFrontMatter    ErrorCode = "MalformedFrontMatter"
	CodeUnsupportedExtension    ErrorCode = "UnsupportedExtension"
	CodeTemplateNotFound        ErrorCode = "TemplateNotFound"
	CodeCyclicTemplateGraph     ErrorCode = "CyclicTemplateGraph"
	CodeShortcodeRecursionLimit ErrorCode = "ShortcodeRecursionLimit"
	CodeUndefinedVariable       ErrorCode = "UndefinedVariable"
	CodeExecutionFailure        ErrorCode = "ExecutionFailure"
	CodeBrokenInternalLink      ErrorCode = "BrokenInternalLink"
)

// ContextKeyCode is the context key under which an ErrorCode is stored.
const ContextKeyCode = "code"

// ErrorContext provides structured context for errors.
type ErrorContext map[string]any

// Set adds or updates a context value.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

// Get retrieves a context value.
func (c ErrorContext) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	value, exists := c[key]
	return value, exists
}

// GetString retrieves a string context value.
func (c ErrorContext) GetString(key string) (string, bool) {
	if value, exists := c.Get(key); exists {
		if str, ok := value.(string); ok {
			return str, true
		}
	}
	return "", false
}

// Merge combines two contexts, with other taking precedence.
func (c ErrorContext) Merge(other ErrorContext) ErrorContext {
	if c == nil {
		return other
	}
	if other == nil {
		return c
	}
	result := make(ErrorContext, len(c)+len(other))
	maps.Copy(result, c)
	maps.Copy(result, other)
	return result
}

// clone returns a shallow copy so derived errors never share a map.
func (c ErrorContext) clone() ErrorContext {
	if c == nil {
		return make(ErrorContext)
	}
	return maps.Clone(c)
}
