package kvdb

const (
	SettingsBucket = "settings"
	IndexesBucket  = "indexes"
	MetaBucket     = "meta"
)

var buckets = []string{SettingsBucket, IndexesBucket, MetaBucket}

type DB interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
	Delete(bucket string, key string) error
	GetAllKeys(bucket string) ([]string, error)
	Close() error
}
