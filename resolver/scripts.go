package resolver

// 页内扫描脚本：固定命名、固定入参/出参结构
// 引擎只通过这几个脚本在页面里批量扫描，不注入动态闭包

// scanCandidate 页内扫描脚本的统一返回行
type scanCandidate struct {
	Selector string  `json:"selector"`
	Score    float64 `json:"score"`
}

// scriptFeatureExtract 提取单个元素的五组特征
// 入参: selector 出参: FeatureVector 结构（任何一组失败都会抛错，整体提取失败）
const scriptFeatureExtract = `(selector) => {
	const el = document.querySelector(selector);
	if (!el) throw new Error('element not found: ' + selector);

	const style = window.getComputedStyle(el);
	const rect = el.getBoundingClientRect();
	const zIndex = parseInt(style.zIndex, 10) || 0;
	const opacity = parseFloat(style.opacity);
	const area = rect.width * rect.height;

	const attrs = {};
	for (const a of el.attributes) attrs[a.name] = a.value;

	const ancestors = [];
	let depth = 0;
	for (let p = el.parentElement; p; p = p.parentElement) {
		ancestors.unshift(p.tagName.toLowerCase());
		depth++;
	}

	const implicitRoles = {
		a: 'link', button: 'button', input: 'textbox', select: 'combobox',
		textarea: 'textbox', nav: 'navigation', main: 'main', header: 'banner',
		footer: 'contentinfo', aside: 'complementary', form: 'form',
		h1: 'heading', h2: 'heading', h3: 'heading', h4: 'heading', h5: 'heading', h6: 'heading'
	};
	const tag = el.tagName.toLowerCase();
	const role = el.getAttribute('role') || implicitRoles[tag] || '';
	const headingMatch = tag.match(/^h([1-6])$/);

	const siblingTexts = [];
	if (el.parentElement) {
		for (const sib of el.parentElement.children) {
			if (sib !== el) siblingTexts.push((sib.textContent || '').trim().substring(0, 50));
		}
	}

	let precedingHeading = '';
	{
		const headings = document.querySelectorAll('h1,h2,h3,h4,h5,h6');
		for (const h of headings) {
			const pos = h.compareDocumentPosition(el);
			if (pos & Node.DOCUMENT_POSITION_FOLLOWING) precedingHeading = (h.textContent || '').trim();
		}
	}

	let labelText = '';
	if (el.id) {
		const label = document.querySelector('label[for="' + el.id + '"]');
		if (label) labelText = (label.textContent || '').trim();
	}
	if (!labelText) {
		const wrapping = el.closest('label');
		if (wrapping) labelText = (wrapping.textContent || '').trim();
	}

	const form = el.closest('form');
	const table = el.closest('table');
	const tableHeaders = [];
	if (table) {
		for (const th of table.querySelectorAll('th')) tableHeaders.push((th.textContent || '').trim());
	}
	const landmarkEl = el.closest('nav,main,header,footer,aside,form,[role]');

	const interactiveTags = ['a', 'button', 'input', 'select', 'textarea', 'option'];
	const interactive = interactiveTags.includes(tag) || el.hasAttribute('onclick') || style.cursor === 'pointer';

	const prev = el.previousElementSibling;
	const next = el.nextElementSibling;

	return {
		text: {
			content: (el.textContent || '').trim().substring(0, 200),
			visible_text: (el.innerText || '').trim().substring(0, 200),
			aria_label: el.getAttribute('aria-label') || '',
			title: el.getAttribute('title') || '',
			placeholder: el.getAttribute('placeholder') || '',
			value: el.value || '',
			alt: el.getAttribute('alt') || ''
		},
		visual: {
			visible: rect.width > 0 && rect.height > 0 && style.visibility !== 'hidden' && style.display !== 'none',
			x: rect.x, y: rect.y, width: rect.width, height: rect.height,
			z_index: zIndex,
			opacity: opacity,
			background: style.backgroundColor,
			color: style.color,
			font_size: style.fontSize,
			in_viewport: rect.top < window.innerHeight && rect.bottom > 0 && rect.left < window.innerWidth && rect.right > 0,
			visual_weight: area * opacity * Math.max(zIndex, 1)
		},
		structural: {
			tag: tag,
			attributes: attrs,
			classes: Array.from(el.classList),
			id: el.id || '',
			interactive: interactive,
			child_count: el.children.length,
			sibling_count: el.parentElement ? el.parentElement.children.length - 1 : 0,
			ancestor_path: ancestors.join('>'),
			depth: depth
		},
		semantic: {
			role: role,
			landmark: !!landmark(el),
			heading_level: headingMatch ? parseInt(headingMatch[1], 10) : 0,
			in_list: !!el.closest('ul,ol,dl'),
			in_table: !!table,
			required: el.hasAttribute('required') || el.getAttribute('aria-required') === 'true'
		},
		context: {
			parent_tag: el.parentElement ? el.parentElement.tagName.toLowerCase() : '',
			parent_text: el.parentElement ? (el.parentElement.textContent || '').trim().substring(0, 100) : '',
			sibling_texts: siblingTexts,
			preceding_heading: precedingHeading,
			label_text: labelText,
			form_id: form ? (form.id || '') : '',
			table_headers: tableHeaders,
			landmark: landmarkEl ? landmarkEl.tagName.toLowerCase() : '',
			prev_sibling_text: prev ? (prev.textContent || '').trim().substring(0, 50) : '',
			next_sibling_text: next ? (next.textContent || '').trim().substring(0, 50) : ''
		}
	};

	function landmark(node) {
		return node.closest('nav,main,header,footer,aside,[role="navigation"],[role="main"],[role="banner"],[role="contentinfo"]');
	}
}`

// scriptNearbyScore 近邻策略的整页扫描
// 入参: {idFragment, classes, text, tag} 出参: {selector, score} 或 null
// 评分: 类名重叠 ×10、id 部分匹配 +20、文本包含 +15、标签一致 +5
const scriptNearbyScore = `(hints) => {
	let best = null;
	let bestScore = 0;

	for (const el of document.querySelectorAll('*')) {
		let score = 0;

		if (hints.classes && hints.classes.length > 0) {
			for (const cls of hints.classes) {
				if (el.classList.contains(cls)) score += 10;
			}
		}
		if (hints.idFragment && el.id && el.id.toLowerCase().includes(hints.idFragment.toLowerCase())) {
			score += 20;
		}
		if (hints.text) {
			const text = (el.textContent || '').trim();
			if (text && text.toLowerCase().includes(hints.text.toLowerCase())) score += 15;
		}
		if (hints.tag && el.tagName.toLowerCase() === hints.tag.toLowerCase()) {
			score += 5;
		}

		if (score > bestScore) {
			bestScore = score;
			best = el;
		}
	}

	if (!best || bestScore <= 0) return null;
	return { selector: bestSelector(best), score: bestScore };

	// 可用的最稳定选择器: id > 第一个类名 > 标签
	function bestSelector(el) {
		if (el.id) return '#' + el.id;
		if (el.classList.length > 0) return '.' + el.classList[0];
		return el.tagName.toLowerCase();
	}
}`

// scriptVisualScore 视觉策略扫描
// 入参: 视觉签名 出参: {selector, score} 或 null
// 过滤: 宽高差 <10px、上左差 <50px；颜色与字号需完全一致
const scriptVisualScore = `(sig) => {
	let best = null;
	let bestScore = 0;

	for (const el of document.querySelectorAll('*')) {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) continue;
		if (Math.abs(rect.width - sig.width) >= 10) continue;
		if (Math.abs(rect.height - sig.height) >= 10) continue;
		if (Math.abs(rect.top - sig.top) >= 50) continue;
		if (Math.abs(rect.left - sig.left) >= 50) continue;

		const style = window.getComputedStyle(el);
		let score = 0;
		score += 20 - Math.abs(rect.width - sig.width) - Math.abs(rect.height - sig.height);
		score += 20 - (Math.abs(rect.top - sig.top) + Math.abs(rect.left - sig.left)) / 5;
		if (style.backgroundColor === sig.background) score += 20;
		if (style.color === sig.color) score += 15;
		if (style.fontSize === sig.font_size) score += 15;

		if (score > bestScore) {
			bestScore = score;
			best = el;
		}
	}

	if (!best) return null;
	return { selector: bestSelector(best), score: bestScore };

	function bestSelector(el) {
		if (el.id) return '#' + el.id;
		if (el.classList.length > 0) return '.' + el.classList[0];
		return el.tagName.toLowerCase();
	}
}`

// scriptStructureScore 结构策略扫描（仅扫同标签元素）
// 评分: 父标签 +20、父类名 +15、兄弟序号 +10、子元素数 +10、每个属性一致 +5
const scriptStructureScore = `(sig) => {
	let best = null;
	let bestScore = 0;

	for (const el of document.querySelectorAll(sig.tag)) {
		let score = 0;
		const parent = el.parentElement;

		if (parent && parent.tagName.toLowerCase() === sig.parent_tag) score += 20;
		if (parent && sig.parent_class && parent.classList.contains(sig.parent_class)) score += 15;
		if (parent && Array.from(parent.children).indexOf(el) === sig.sibling_index) score += 10;
		if (el.children.length === sig.child_count) score += 10;
		if (sig.attributes) {
			for (const [name, value] of Object.entries(sig.attributes)) {
				if (el.getAttribute(name) === value) score += 5;
			}
		}

		if (score > bestScore) {
			bestScore = score;
			best = el;
		}
	}

	if (!best) return null;
	return { selector: bestSelector(best), score: bestScore };

	function bestSelector(el) {
		if (el.id) return '#' + el.id;
		if (el.classList.length > 0) return '.' + el.classList[0];
		return el.tagName.toLowerCase();
	}
}`

// scriptSignatureCapture 定位成功后采集视觉/结构签名
// 入参: selector 出参: {visual, structure}
const scriptSignatureCapture = `(selector) => {
	const el = document.querySelector(selector);
	if (!el) throw new Error('element not found: ' + selector);

	const rect = el.getBoundingClientRect();
	const style = window.getComputedStyle(el);
	const parent = el.parentElement;

	const attrs = {};
	for (const a of el.attributes) attrs[a.name] = a.value;

	return {
		visual: {
			width: rect.width, height: rect.height, top: rect.top, left: rect.left,
			background: style.backgroundColor, color: style.color, font_size: style.fontSize
		},
		structure: {
			tag: el.tagName.toLowerCase(),
			parent_tag: parent ? parent.tagName.toLowerCase() : '',
			parent_class: parent && parent.classList.length > 0 ? parent.classList[0] : '',
			sibling_index: parent ? Array.from(parent.children).indexOf(el) : 0,
			child_count: el.children.length,
			attributes: attrs
		}
	};
}`

// scriptInteractiveScan 列出所有可交互元素及其视觉属性
// 供视觉描述匹配器在 Go 侧按条件打分
const scriptInteractiveScan = `() => {
	const out = [];
	const vw = window.innerWidth;
	const vh = window.innerHeight;

	for (const el of document.querySelectorAll('a, button, input, select, textarea, [role], [onclick]')) {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) continue;

		const style = window.getComputedStyle(el);
		out.push({
			selector: bestSelector(el),
			tag: el.tagName.toLowerCase(),
			text: ((el.innerText || el.value || el.getAttribute('aria-label') || '')).trim().substring(0, 100),
			background: style.backgroundColor,
			color: style.color,
			x: rect.x, y: rect.y, width: rect.width, height: rect.height,
			center_x: rect.x + rect.width / 2,
			center_y: rect.y + rect.height / 2,
			viewport_width: vw, viewport_height: vh,
			border_radius: style.borderRadius
		});
	}
	return out;

	function bestSelector(el) {
		if (el.id) return '#' + el.id;
		const testId = el.getAttribute('data-testid');
		if (testId) return '[data-testid="' + testId + '"]';
		if (el.classList.length > 0) return el.tagName.toLowerCase() + '.' + el.classList[0];
		return el.tagName.toLowerCase();
	}
}`
