package behavior

import (
	"sync"
)

// ══════════════════════════════════════════════════════════════════════════════
// BEHAVIOR AGGREGATOR
// Сворачивает дискретные события в скользящие агрегаты по секциям.
// События одной сессии обрабатываются строго по порядку поступления.
// ══════════════════════════════════════════════════════════════════════════════

// scopeKey - ключ агрегата внутри аггрегатора.
type scopeKey struct {
	learnerID string
	sectionID string
}

// Aggregator накапливает агрегаты поведения по секциям.
// Каждая сессия владеет своим экземпляром; мьютекс защищает только
// от чтения агрегатов из другой горутины (HTTP-запросы на чтение).
type Aggregator struct {
	mu         sync.RWMutex
	aggregates map[scopeKey]*SectionAggregate

	// onRecord вызывается после каждого успешно свёрнутого события.
	onRecord func(e Event, agg *SectionAggregate)
}

// NewAggregator создаёт пустой агрегатор.
func NewAggregator() *Aggregator {
	return &Aggregator{
		aggregates: make(map[scopeKey]*SectionAggregate),
	}
}

// OnRecord регистрирует колбэк, вызываемый после сворачивания события.
// Колбэк получает копию агрегата.
func (g *Aggregator) OnRecord(fn func(e Event, agg *SectionAggregate)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onRecord = fn
}

// Record валидирует событие и сворачивает его в агрегат его области.
// Некорректное событие отвергается с ошибкой валидации; агрегат
// при этом не меняется. События никогда не теряются молча: для
// неизвестной области создаётся новый нулевой агрегат.
func (g *Aggregator) Record(e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}

	g.mu.Lock()
	key := scopeKey{learnerID: e.Scope.LearnerID, sectionID: e.Scope.SectionID}
	agg, ok := g.aggregates[key]
	if !ok {
		agg = NewSectionAggregate(e.Scope)
		g.aggregates[key] = agg
	}
	agg.apply(e)
	cb := g.onRecord
	snapshot := agg.Clone()
	g.mu.Unlock()

	if cb != nil {
		cb(e, snapshot)
	}
	return nil
}

// Aggregate возвращает копию агрегата для пары (ученик, секция).
// Для неизвестной области возвращается нулевой агрегат - отсутствие
// событий не является ошибкой.
func (g *Aggregator) Aggregate(learnerID, sectionID string) *SectionAggregate {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if agg, ok := g.aggregates[scopeKey{learnerID: learnerID, sectionID: sectionID}]; ok {
		return agg.Clone()
	}
	return NewSectionAggregate(Scope{LearnerID: learnerID, SectionID: sectionID})
}

// Has сообщает, есть ли агрегат для пары (ученик, секция).
func (g *Aggregator) Has(learnerID, sectionID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.aggregates[scopeKey{learnerID: learnerID, sectionID: sectionID}]
	return ok
}

// All возвращает копии всех агрегатов. Используется при закрытии сессии
// для отложенной записи в хранилище.
func (g *Aggregator) All() []*SectionAggregate {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*SectionAggregate, 0, len(g.aggregates))
	for _, agg := range g.aggregates {
		out = append(out, agg.Clone())
	}
	return out
}

// Restore загружает ранее сохранённый агрегат (при возобновлении сессии).
// Существующий агрегат той же области не затирается: счётчики растут
// монотонно, и загруженная версия не может быть новее текущей.
func (g *Aggregator) Restore(agg *SectionAggregate) {
	if agg == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	key := scopeKey{learnerID: agg.Scope.LearnerID, sectionID: agg.Scope.SectionID}
	if _, ok := g.aggregates[key]; !ok {
		g.aggregates[key] = agg.Clone()
	}
}

// Len возвращает количество агрегатов.
func (g *Aggregator) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.aggregates)
}
