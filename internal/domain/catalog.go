package domain

// BriefingTemplate — стартовый шаблон брифинга.
type BriefingTemplate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FreeTopicTemplateID — шаблон «своя тема»: подсказки для него не запрашиваются.
const FreeTopicTemplateID = "free-topic"

// BriefingTemplates — фиксированный каталог шаблонов брифинга.
var BriefingTemplates = []BriefingTemplate{
	{ID: "practical-tip", Name: "Практический совет", Description: "Конкретный приём, который читатель применит сегодня"},
	{ID: "personal-story", Name: "Личная история", Description: "Случай из практики с выводом"},
	{ID: "industry-trend", Name: "Тренд индустрии", Description: "Наблюдение о том, куда движется рынок"},
	{ID: "contrarian-take", Name: "Спорное мнение", Description: "Позиция против общепринятой точки зрения"},
	{ID: FreeTopicTemplateID, Name: "Своя тема", Description: "Свободная тема без шаблона"},
}

// ValidTemplate проверяет, что шаблон есть в каталоге.
func ValidTemplate(id string) bool {
	for _, t := range BriefingTemplates {
		if t.ID == id {
			return true
		}
	}
	return false
}

// CopyStructure — копирайтерская структура поста.
type CopyStructure struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CopyStructures — фиксированный набор структур, без вызова LLM.
var CopyStructures = []CopyStructure{
	{Code: "PAS", Name: "Problem — Agitation — Solution", Description: "Проблема, нагнетание, решение"},
	{Code: "AIDA", Name: "Attention — Interest — Desire — Action", Description: "Внимание, интерес, желание, действие"},
	{Code: "BAB", Name: "Before — After — Bridge", Description: "До, после, мост между ними"},
	{Code: "STAR", Name: "Situation — Task — Action — Result", Description: "Ситуация, задача, действия, результат"},
	{Code: "LIST", Name: "Список", Description: "Нумерованный перечень приёмов или выводов"},
}

// ValidStructure проверяет код структуры по каталогу.
func ValidStructure(code string) bool {
	for _, s := range CopyStructures {
		if s.Code == code {
			return true
		}
	}
	return false
}

// ContentTypeOption — формат поста.
type ContentTypeOption struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ContentTypes — фиксированный каталог форматов.
var ContentTypes = []ContentTypeOption{
	{Code: "how-to", Name: "Инструкция", Description: "Пошаговое «как сделать»"},
	{Code: "story", Name: "История", Description: "Нарратив с развязкой"},
	{Code: "opinion", Name: "Мнение", Description: "Аргументированная позиция"},
	{Code: "case-study", Name: "Кейс", Description: "Разбор результата с цифрами"},
	{Code: "question", Name: "Вопрос", Description: "Пост-дискуссия для комментариев"},
}

// ValidContentType проверяет код формата по каталогу.
func ValidContentType(code string) bool {
	for _, ct := range ContentTypes {
		if ct.Code == code {
			return true
		}
	}
	return false
}
