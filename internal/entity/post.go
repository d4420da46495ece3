package entity

// Post is a single item in the home/activity feed.
type Post struct {
	ID         string
	AuthorID   string
	AuthorName string
	Text       string
	MediaURL   string
	LikeCount  int
	Liked      bool
	Interested bool
	CreatedAt  int64 // unix millis
	Lifecycle  Lifecycle
}

func (p *Post) EntityID() string    { return p.ID }
func (p *Post) Kind() Kind          { return KindPost }
func (p *Post) OrderKey() int64     { return p.CreatedAt }
func (p *Post) Life() Lifecycle     { return p.Lifecycle }
func (p *Post) SetLife(l Lifecycle) { p.Lifecycle = l }

func (p *Post) Clone() Entity {
	cp := *p
	return &cp
}
