package conflict

import "fmt"

// Registry хранит стратегию для каждой коллекции. Заполняется один раз
// при старте; движок резолвит стратегию по имени коллекции без
// branching по строкам.
type Registry struct {
	strategies map[string]Strategy
	fallback   Strategy
}

// NewRegistry создает registry с fallback-стратегией для коллекций
// без явной регистрации
func NewRegistry(fallback Strategy) *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		fallback:   fallback,
	}
}

// Register привязывает стратегию к коллекции. Повторная регистрация
// той же коллекции — ошибка конфигурации.
func (r *Registry) Register(collection string, s Strategy) error {
	if _, ok := r.strategies[collection]; ok {
		return fmt.Errorf("conflict strategy already registered for collection %q", collection)
	}
	r.strategies[collection] = s
	return nil
}

// For возвращает стратегию коллекции или fallback
func (r *Registry) For(collection string) Strategy {
	if s, ok := r.strategies[collection]; ok {
		return s
	}
	return r.fallback
}
