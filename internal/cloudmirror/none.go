package cloudmirror

// NoneProvider is the no-op provider used when cloud_target.provider
// is "none": every operation succeeds without doing anything.
type NoneProvider struct{}

func (NoneProvider) Login() error  { return nil }
func (NoneProvider) Logout() error { return nil }

func (NoneProvider) Mkdir(string) error { return nil }

func (NoneProvider) Readdir(string) ([]Entry, error) { return nil, nil }

func (NoneProvider) Stat(string) (*Stat, bool, error) { return nil, false, nil }

func (NoneProvider) Rename(string, string) error { return nil }

func (NoneProvider) Upload(string, string) error { return nil }

func (NoneProvider) Download(string, string) error { return nil }

func (NoneProvider) Remove(string) error { return nil }
