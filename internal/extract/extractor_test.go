package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artner/artmap-crawler/internal/exhibit"
)

const baseURL = "https://art-map.co.kr"

const newTemplatePage = `<html><body>
<div style="width:1280px; text-align:center; font-size:26px">모네와   빛의 정원</div>
<img style="max-width:100%; max-height:600px" src="/data/exhibit/poster.jpg">
<table>
  <tr><th>전시기간</th><td>2024.03.01 - 2024.05.31</td></tr>
  <tr><th>운영시간</th><td>10:00 ~ 18:00</td></tr>
  <tr><th>장소</th><td><a href="/gallery/1">서울미술관</a> 본관</td></tr>
  <tr><th>주소</th><td>서울시 종로구 1-1</td></tr>
  <tr><th>휴관일</th><td>매주 월요일</td></tr>
  <tr><th>관람료</th><td>15,000원</td></tr>
  <tr><th>전화번호</th><td>02-123-4567</td></tr>
  <tr><th>홈페이지</th><td><a href="https://seoulmuseum.example.com">바로가기</a></td></tr>
  <tr><th>참여작가</th><td>클로드 모네</td></tr>
</table>
<div class="exhibition_info">인상파   거장의 대표작을 선보입니다.</div>
<div class="detail_image">
  <img src="/data/exhibit/poster.jpg">
  <img src="//cdn.example.com/room1.jpg">
  <img src="/data/exhibit/room2.jpg">
</div>
</body></html>`

const oldTemplatePage = `<html><body>
<div style="text-align:center; font-size:22px">조선의 백자</div>
<img src="/data/old/white.jpg">
<table>
  <tr><th>기간</th><td>2024/3/1~2024/5/31</td></tr>
  <tr><th>문의</th><td>02-777-0000</td></tr>
  <tr><th>사이트</th><td>museum.example.com</td></tr>
</table>
</body></html>`

func TestExtractNewTemplate(t *testing.T) {
	t.Parallel()

	link := exhibit.DiscoveredLink{URL: "https://art-map.co.kr/exhibition/view.php?idx=1"}
	detail := New(baseURL).Extract(newTemplatePage, link)

	assert.Equal(t, "모네와 빛의 정원", detail.Title)
	assert.Equal(t, "2024.03.01 - 2024.05.31", detail.Period)
	assert.Equal(t, "10:00 ~ 18:00", detail.OpeningHours)
	assert.Equal(t, "서울미술관", detail.Venue)
	assert.Equal(t, "서울시 종로구 1-1", detail.Address)
	assert.Equal(t, "매주 월요일", detail.ClosedDays)
	assert.Equal(t, "15,000원", detail.Price)
	assert.Equal(t, "02-123-4567", detail.Telephone)
	assert.Equal(t, "https://seoulmuseum.example.com", detail.Website)
	assert.Equal(t, "클로드 모네", detail.Artists)
	assert.Equal(t, "인상파 거장의 대표작을 선보입니다.", detail.Description)
	assert.Empty(t, detail.FetchError)

	require.NotEmpty(t, detail.Images)
	assert.Equal(t, "https://art-map.co.kr/data/exhibit/poster.jpg", detail.MainImage())
	assert.Contains(t, detail.Images, "https://cdn.example.com/room1.jpg")
	assert.Contains(t, detail.Images, "https://art-map.co.kr/data/exhibit/room2.jpg")
	// The poster appears both as the styled image and in the gallery; it is
	// listed once.
	assert.Len(t, detail.Images, 3)
}

func TestExtractOldTemplateFallbacks(t *testing.T) {
	t.Parallel()

	link := exhibit.DiscoveredLink{URL: "https://art-map.co.kr/exhibition/view.php?idx=2"}
	detail := New(baseURL).Extract(oldTemplatePage, link)

	// No 26px heading: the centered div before the table wins.
	assert.Equal(t, "조선의 백자", detail.Title)
	assert.Equal(t, "2024/3/1~2024/5/31", detail.Period)
	assert.Equal(t, "02-777-0000", detail.Telephone)
	assert.Equal(t, "museum.example.com", detail.Website)
	// No gallery or styled image: the image preceding the table wins.
	assert.Equal(t, "https://art-map.co.kr/data/old/white.jpg", detail.MainImage())
}

func TestExtractTitleFallsBackToSummary(t *testing.T) {
	t.Parallel()

	link := exhibit.DiscoveredLink{
		URL:    "https://art-map.co.kr/exhibition/view.php?idx=3",
		Title:  "여름 기획전",
		Venue:  "부산 현대미술관",
		Period: "2024.06.01 - 2024.08.31",
	}
	detail := New(baseURL).Extract(`<html><body><p>본문 없음</p></body></html>`, link)

	assert.Equal(t, "여름 기획전", detail.Title)
	assert.Equal(t, "부산 현대미술관", detail.Venue)
	assert.Equal(t, "2024.06.01 - 2024.08.31", detail.Period)
	assert.Empty(t, detail.FetchError)
}

func TestExtractKeepsThumbnailWhenPageHasNoImages(t *testing.T) {
	t.Parallel()

	link := exhibit.DiscoveredLink{
		URL:          "https://art-map.co.kr/exhibition/view.php?idx=4",
		Title:        "썸네일만 있는 전시",
		ThumbnailURL: "https://art-map.co.kr/data/thumb.jpg",
	}
	detail := New(baseURL).Extract(`<html><body><table><tr><th>기간</th><td>2024.01.01 - 2024.02.01</td></tr></table></body></html>`, link)

	assert.Equal(t, []string{"https://art-map.co.kr/data/thumb.jpg"}, detail.Images)
}
