package bot

import (
	"container/heap"
	"sync"

	"crossarb/internal/models"
)

// sorted_index.go - индекс сделок по выгоде
//
// Поддерживает быстрый выбор сделки с максимальной выгодой при
// частых обновлениях. Куча хранит и устаревшие записи, актуальность
// проверяется по живому словарю при чтении (ленивое удаление).

type indexItem struct {
	key     string
	benefit float64
	seq     uint64
}

type itemHeap []indexItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].benefit != h[j].benefit {
		return h[i].benefit > h[j].benefit
	}
	// При равной выгоде побеждает более поздняя запись
	return h[i].seq > h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(indexItem)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// SortedIndex - потокобезопасный индекс "ключ → сделка",
// отсортированный по убыванию выгоды
type SortedIndex struct {
	mu   sync.Mutex
	heap itemHeap
	live map[string]models.Deal
	seq  map[string]uint64
	tick uint64
}

func NewSortedIndex() *SortedIndex {
	return &SortedIndex{
		live: map[string]models.Deal{},
		seq:  map[string]uint64{},
	}
}

// Set записывает актуальную сделку ключа
func (x *SortedIndex) Set(key string, deal models.Deal) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.tick++
	x.live[key] = deal
	x.seq[key] = x.tick
	heap.Push(&x.heap, indexItem{key: key, benefit: deal.Benefit, seq: x.tick})
}

// Remove выбрасывает ключ из индекса
func (x *SortedIndex) Remove(key string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.live, key)
	delete(x.seq, key)
}

// Get возвращает актуальную сделку ключа
func (x *SortedIndex) Get(key string) (models.Deal, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	deal, ok := x.live[key]
	return deal, ok
}

// Best возвращает сделку с максимальной выгодой.
// Устаревшие вершины кучи отбрасываются по пути.
func (x *SortedIndex) Best() (models.Deal, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for x.heap.Len() > 0 {
		top := x.heap[0]
		if top.seq == x.seq[top.key] {
			return x.live[top.key], true
		}
		heap.Pop(&x.heap)
	}
	return models.Deal{}, false
}

// Len возвращает число живых ключей
func (x *SortedIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.live)
}

// All возвращает копию живых сделок
func (x *SortedIndex) All() map[string]models.Deal {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make(map[string]models.Deal, len(x.live))
	for k, v := range x.live {
		out[k] = v
	}
	return out
}
