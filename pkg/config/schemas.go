package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
)

// SchemaRegistry holds the CUE definitions declarations are checked
// against. All values share the registry's cue.Context, so they unify with
// values compiled by the Loader.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry holding the built-in definitions.
func NewSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	if err := sr.registerBuiltInSchemas(); err != nil {
		// The built-in source is a constant; failing here is a programming error.
		panic(err)
	}

	return sr
}

// builtinDefinitions are the definitions in declarationSchema exposed by
// name.
var builtinDefinitions = []string{
	"#Declaration", "#Fragment", "#Server", "#Project", "#Job", "#NodeSource", "#Acl", "#User", "#Node",
}

func (sr *SchemaRegistry) registerBuiltInSchemas() error {
	root := sr.ctx.CompileString(declarationSchema, cue.Filename("declaration.cue"))
	if err := root.Err(); err != nil {
		return fmt.Errorf("failed to compile built-in schema: %w", err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	for _, name := range builtinDefinitions {
		def := root.LookupPath(cue.ParsePath(name))
		if !def.Exists() {
			return fmt.Errorf("built-in schema %s missing", name)
		}
		sr.schemas[name] = def
	}
	return nil
}

// RegisterSchema compiles schema and registers it under name. The source
// must evaluate to the constraint itself, not a file of definitions.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify checks val against the named schema and returns the unified
// value. Incomplete values are an error.
func (sr *SchemaRegistry) Unify(schemaName string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return unified, err
	}
	return unified, nil
}

// ValidateAgainstSchema validates Go data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	if _, err := sr.Unify(schemaName, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SchemaSource returns the CUE source of the built-in definitions, for
// users who want to import them into their own packages.
func SchemaSource() string {
	return declarationSchema
}

const declarationSchema = `
// A fragment is what a single source may declare.
#Fragment: {
	server?: #Server
	projects?: [...#Project]
	acls?: [...#Acl]
	users?: [...#User]
}

// A declaration: one server and everything it owns.
#Declaration: #Fragment & {
	server: #Server
}

#Port: int & >0 & <65536
#AbsPath: string & =~"^/"

#Server: {
	node_name?:           string
	version?:             string
	launcher_url?:        string
	service_name?:        string & !=""
	path?:                #AbsPath
	config_path?:         #AbsPath
	log_path?:            #AbsPath
	user?:                string & !=""
	group?:               string & !=""
	ssh_user?:            string
	port?:                #Port
	log4j_port?:          #Port
	public_rss?:          bool
	logging_level?:       "TRACE" | "DEBUG" | "INFO" | "WARN" | "ERROR" | "FATAL"
	hostname?:            string
	jvm_options?:         string
	enable_default_acls?: bool
	install_method?:      "package" | "jar"
	environment?:         string
	health_path?:         #AbsPath
	startup_timeout?:     string & =~"^[0-9]+(ns|us|ms|s|m|h)([0-9]+(ns|us|ms|s|m|h))*$"

	mail?: {
		hostname?: string
		port?:     #Port
		username?: string
		password?: string
		from?:     string
		tls?:      bool
	}

	proxy?: {
		hostname?: string
		port?:     #Port
		scheme?:   "http" | "https"
	}

	admin: {
		username?: string
		password:  string & !=""
	}

	nodes?: [...#Node]
}

#Project: {
	name:                string & !=""
	project_name?:       string
	action?:             "enable" | "disable" | "reconfigure"
	ssh_authentication?: "privateKey" | "password"
	ssh_key?:            string
	executor?:           "jsch-ssh" | "stub"
	file_copier?:        "jsch-scp" | "stub"
	content?:            string
	jobs?: [...#Job]
	node_sources?: [...#NodeSource]
}

#Job: {
	name:      string & !=""
	job_name?: string
	action?:   "enable" | "disable"
	format?:   "yaml" | "xml"
	content:   string & !=""
}

#NodeSource: {
	name:      string & !=""
	type?:     "file"
	action?:   "enable" | "disable"
	query?:    string
	limit?:    int & >=0
	username?: string
	manual_nodes?: [...#Node]
}

#Acl: {
	name:      string & !=""
	acl_name?: string
	action?:   "enable" | "disable"
	content:   string & !=""
}

#User: {
	name:      string & !=""
	username?: string
	action?:   "enable"
	password:  string & !=""
	format?:   "md5" | "crypt" | "plain" | "bcrypt"
	roles?: [...string]
}

#Node: {
	name:            string & !=""
	description?:    string
	roles?: [...string]
	recipes?: [...string]
	fqdn?:           string
	os?:             string
	kernel_machine?: string
	kernel_name?:    string
	kernel_release?: string
	environment?:    string
	attributes?: {[string]: string}
}
`
