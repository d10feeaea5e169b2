package environment

// NewDefaultProvider reads the process environment first, then the given
// env files.
func NewDefaultProvider(envFiles []string) (Provider, error) {
	providers := []Provider{NewOsEnvProvider()}

	if len(envFiles) > 0 {
		files, err := NewEnvFilesProvider(envFiles)
		if err != nil {
			return nil, err
		}
		providers = append(providers, files)
	}

	return NewMultiProvider(providers...), nil
}
