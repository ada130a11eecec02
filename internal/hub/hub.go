package hub

/*
Файл hub.go реализует Realtime Broadcast Hub — реестр подключенных
WebSocket-клиентов дашборда и веер рассылки (fan-out) каждого сохраненного
события и алерта.

Ключевые особенности архитектуры:
- Non-blocking Broadcast: события попадают в буферизованный канал, рассылкой
  занимается отдельный воркер. Задержки медленных клиентов не влияют на
  Hot Path приема событий.
- Self-healing Registry: клиент, на котором сломалась отправка, немедленно
  выбрасывается из реестра — один мертвый сокет никогда не мешает доставке
  остальным.
- Drain Pattern & Graceful Shutdown: при остановке канал запирается,
  воркер дочитывает остатки и закрывает все соединения.
*/

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xela07ax/agent-pulse/internal/domain"
	"github.com/xela07ax/agent-pulse/internal/metrics"
	"go.uber.org/zap"
)

// Сколько последних событий отдаем клиенту сразу при подключении,
// чтобы дашборд наполнился без отдельного REST-запроса
const initialSnapshotLimit = 100

const writeTimeout = 5 * time.Second

// RecentProvider описывает, что нам нужно от хранилища событий
type RecentProvider interface {
	RecentEvents(ctx context.Context, limit int) ([]*domain.Event, error)
}

type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	ch      chan []byte // Буфер для асинхронной рассылки
	store   RecentProvider
	metrics *metrics.Metrics
	logger  *zap.Logger
	wg      sync.WaitGroup

	// Защищает вход в канал от его закрытия: Broadcast держит RLock на
	// время отправки, Stop закрывает канал под эксклюзивным локом
	closeMu  sync.RWMutex
	isClosed bool
}

func NewHub(store RecentProvider, m *metrics.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		ch:      make(chan []byte, 1024),
		store:   store,
		metrics: m,
		logger:  logger.With(zap.String("mod", "hub")),
	}
}

func (h *Hub) Start() {
	h.wg.Add(1)
	go h.worker()
}

// Stop «запирает» вход в канал, ждет пока воркер дорассылает остатки
// и закрывает все клиентские соединения.
func (h *Hub) Stop() {
	// Эксклюзивный лок дожидается активных Broadcast: закрыть канал
	// под пишущим нельзя
	h.closeMu.Lock()
	h.isClosed = true
	close(h.ch)
	h.closeMu.Unlock()

	h.logger.Info("stopping hub: channel closed, draining queue...")
	h.wg.Wait()

	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	h.logger.Info("hub stopped gracefully")
}

// Register добавляет клиента в реестр и сразу шлет ему снапшот
// последних событий ({type: "initial"}).
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()

	// Снапшот читается и отправляется под тем же локом, что и веер:
	// событие, разосланное во время регистрации, дождется ее завершения
	// и уйдет через fan-out, а не провалится в щель между запросом
	// снапшота и добавлением клиента в реестр
	snapshot, err := h.store.RecentEvents(context.Background(), initialSnapshotLimit)
	if err != nil {
		h.logger.Error("failed to load initial snapshot", zap.Error(err))
		snapshot = []*domain.Event{}
	}

	h.clients[conn] = struct{}{}
	count := len(h.clients)

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(domain.StreamMessage{Type: domain.StreamTypeInitial, Data: snapshot}); err != nil {
		delete(h.clients, conn)
		count = len(h.clients)
		conn.Close()
	}
	h.mu.Unlock()

	h.metrics.WSClients.Set(float64(count))
	h.logger.Info("dashboard client connected", zap.Int("clients", count))

	// Читающая горутина нужна только чтобы заметить закрытие сокета
	go h.readLoop(conn)
}

// Unregister убирает клиента из реестра (вызывается при закрытии/ошибке).
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		conn.Close()
		h.metrics.WSClients.Set(float64(count))
		h.logger.Info("dashboard client disconnected", zap.Int("clients", count))
	}
}

// Broadcast сериализует сообщение один раз и ставит его в очередь рассылки.
// Вызывается строго после успешного сохранения события — порядок
// persist → broadcast для каждого события гарантирован вызывающей стороной,
// а единственный воркер сохраняет относительный порядок сообщений.
func (h *Hub) Broadcast(msg domain.StreamMessage) {
	data, err := marshalMessage(msg)
	if err != nil {
		h.logger.Error("failed to encode broadcast message", zap.Error(err))
		return
	}

	h.closeMu.RLock()
	defer h.closeMu.RUnlock()

	if h.isClosed {
		h.logger.Warn("broadcast dropped: hub is stopping", zap.String("type", msg.Type))
		return
	}

	// Load Shedding: переполненная очередь важнее, чем потерянное
	// realtime-сообщение (состояние всё равно лежит в хранилище)
	select {
	case h.ch <- data:
	default:
		h.logger.Error("broadcast_queue_overflow", zap.String("type", msg.Type))
	}
}

// ClientCount возвращает размер реестра (для тестов и метрик).
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) worker() {
	defer h.wg.Done()

	for data := range h.ch {
		h.fanOut(data)
	}
	h.logger.Info("hub worker finished")
}

// fanOut шлет готовые байты каждому клиенту; сломавшихся выбрасывает,
// но продолжает доставку остальным.
func (h *Hub) fanOut(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn("client send failed, deregistering", zap.Error(err))
			h.metrics.BroadcastFailures.Inc()
			conn.Close()
			delete(h.clients, conn)
		}
	}
	h.metrics.WSClients.Set(float64(len(h.clients)))
}

func marshalMessage(msg domain.StreamMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// readLoop вычитывает и игнорирует входящие сообщения (протокол клиента
// к серверу не определен), завершаясь на первой ошибке чтения.
func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.Unregister(conn)
			return
		}
	}
}
